package heap

import "github.com/bnclabs/golog"
import "github.com/bnclabs/gengc/api"

func init() {
	setts := map[string]interface{}{
		"log.level": "ignore",
		"log.file":  "",
	}
	log.SetLogger(nil, setts)
}

type node struct {
	name string
	refs []api.ObjectID
}

func (n *node) References() []api.ObjectID {
	return n.refs
}

func newnode(name string, refs ...GcPtr) *node {
	n := &node{name: name}
	for _, ref := range refs {
		n.refs = append(n.refs, ref.ID())
	}
	return n
}

func (n *node) link(refs ...GcPtr) {
	for _, ref := range refs {
		n.refs = append(n.refs, ref.ID())
	}
}
