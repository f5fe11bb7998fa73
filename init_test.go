package gengc

import "github.com/bnclabs/golog"
import "github.com/bnclabs/gengc/api"

func init() {
	setts := map[string]interface{}{
		"log.level": "ignore",
		"log.file":  "",
	}
	log.SetLogger(nil, setts)
	LogComponents("all")
}

type cell struct {
	car, cdr api.ObjectID
}

func (c *cell) References() []api.ObjectID {
	return []api.ObjectID{c.car, c.cdr}
}
