package msg

import "time"

// Record represents one entry read from a stream
type Record struct {
	Stream    string
	Offset    int64
	Fields    map[string]string
	Timestamp int64
}

func copyFields(fields map[string]string) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
