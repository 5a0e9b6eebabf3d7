package main

import (
	"github.com/ismaiel54/margin-exchange/internal/msg"
	"github.com/ismaiel54/margin-exchange/internal/protocol"
)

type replyCounter struct {
	counts      map[string]int
	firstOffset map[string]int64
	malformed   int
}

type replyReport struct {
	Total       int
	Unique      int
	Malformed   int
	Duplicates  map[string]int
	FirstOffset map[string]int64
}

func newReplyCounter() *replyCounter {
	return &replyCounter{
		counts:      make(map[string]int),
		firstOffset: make(map[string]int64),
	}
}

func (c *replyCounter) observe(rec msg.Record) {
	rep, err := protocol.ReplyFromFields(rec.Fields)
	if err != nil {
		c.malformed++
		return
	}
	if _, seen := c.firstOffset[rep.ID]; !seen {
		c.firstOffset[rep.ID] = rec.Offset
	}
	c.counts[rep.ID]++
}

func (c *replyCounter) report() replyReport {
	r := replyReport{
		Unique:      len(c.counts),
		Malformed:   c.malformed,
		Duplicates:  make(map[string]int),
		FirstOffset: c.firstOffset,
	}
	for id, n := range c.counts {
		r.Total += n
		if n > 1 {
			r.Duplicates[id] = n
		}
	}
	return r
}
