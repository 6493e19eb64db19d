package message

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// RequestID is a JSON-RPC id, either an integer or a string.
type RequestID struct {
	num   int64
	str   string
	isStr bool
}

func IntID(n int64) RequestID {
	return RequestID{num: n}
}

func StringID(s string) RequestID {
	return RequestID{str: s, isStr: true}
}

func (id RequestID) IsString() bool {
	return id.isStr
}

func (id RequestID) String() string {
	if id.isStr {
		return strconv.Quote(id.str)
	}
	return strconv.FormatInt(id.num, 10)
}

func (id RequestID) MarshalJSON() ([]byte, error) {
	if id.isStr {
		return json.Marshal(id.str)
	}
	return []byte(strconv.FormatInt(id.num, 10)), nil
}

func (id *RequestID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = StringID(s)
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("message: invalid request id %s", data)
	}
	*id = IntID(n)
	return nil
}
