package tlab

import "github.com/bnclabs/golog"

func init() {
	setts := map[string]interface{}{
		"log.level": "ignore",
		"log.file":  "",
	}
	log.SetLogger(nil, setts)
}
