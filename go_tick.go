package gengc

import "time"

// go-routine to forget TLABs of exited mutators and to log statistics.
func housekeeper(c *Coordinator, interval int64, finch chan struct{}) {
	defer c.wg.Done()

	tick := time.NewTicker(time.Duration(interval) * time.Millisecond)
	defer tick.Stop()

loop:
	for {
		select {
		case <-tick.C:
		case <-finch:
			break loop
		}
		if n := c.Cleanup(); n > 0 {
			debugf("%v housekeeper cleaned %v tlabs\n", c.logprefix, n)
		}
		if c.logstats {
			c.Log()
		}
	}
	debugf("%v housekeeper exited\n", c.logprefix)
}
