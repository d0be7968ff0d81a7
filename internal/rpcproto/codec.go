package rpcproto

import (
	"encoding/json"
	"io"
	"net/rpc"
	"sync"
)

// envelope is the on-wire frame: one JSON object per call/reply,
// newline-delimited. Body carries the method-specific message
// (SubscribeRequest, ProcessRequest, ...) as a raw JSON value so that
// encoding/json's own []byte-as-base64 and omitempty behavior apply to
// the inner message without this envelope needing to know its shape.
type envelope struct {
	Method string          `json:"method,omitempty"`
	Seq    uint64          `json:"seq"`
	Error  string          `json:"error,omitempty"`
	Body   json.RawMessage `json:"body,omitempty"`
}

// ServerCodec implements rpc.ServerCodec over a JSON, newline-delimited
// wire format, per spec §4.7.
type ServerCodec struct {
	dec *json.Decoder
	enc *json.Encoder
	c   io.Closer

	mu       sync.Mutex
	lastBody json.RawMessage
}

// NewServerCodec wraps conn for use with rpc.ServeCodec.
func NewServerCodec(conn io.ReadWriteCloser) rpc.ServerCodec {
	return &ServerCodec{
		dec: json.NewDecoder(conn),
		enc: json.NewEncoder(conn),
		c:   conn,
	}
}

func (c *ServerCodec) ReadRequestHeader(r *rpc.Request) error {
	var env envelope
	if err := c.dec.Decode(&env); err != nil {
		return err
	}
	r.ServiceMethod = env.Method
	r.Seq = env.Seq
	c.mu.Lock()
	c.lastBody = env.Body
	c.mu.Unlock()
	return nil
}

// lastBody stashes the decoded request body between ReadRequestHeader and
// ReadRequestBody, which net/rpc always calls in sequence for a given
// request.
func (c *ServerCodec) ReadRequestBody(body interface{}) error {
	c.mu.Lock()
	last := c.lastBody
	c.mu.Unlock()
	if body == nil || len(last) == 0 {
		return nil
	}
	return json.Unmarshal(last, body)
}

func (c *ServerCodec) WriteResponse(r *rpc.Response, body interface{}) error {
	var raw json.RawMessage
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		raw = b
	}
	env := envelope{Method: r.ServiceMethod, Seq: r.Seq, Error: r.Error, Body: raw}
	return c.enc.Encode(env)
}

func (c *ServerCodec) Close() error { return c.c.Close() }

// ClientCodec implements rpc.ClientCodec over the same wire format.
type ClientCodec struct {
	dec *json.Decoder
	enc *json.Encoder
	c   io.Closer

	mu       sync.Mutex
	pending  map[uint64]string
	lastResp envelope
}

// NewClientCodec wraps conn for use with rpc.NewClientWithCodec.
func NewClientCodec(conn io.ReadWriteCloser) rpc.ClientCodec {
	return &ClientCodec{
		dec:     json.NewDecoder(conn),
		enc:     json.NewEncoder(conn),
		c:       conn,
		pending: make(map[uint64]string),
	}
}

func (c *ClientCodec) WriteRequest(r *rpc.Request, body interface{}) error {
	var raw json.RawMessage
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		raw = b
	}
	c.mu.Lock()
	c.pending[r.Seq] = r.ServiceMethod
	c.mu.Unlock()
	env := envelope{Method: r.ServiceMethod, Seq: r.Seq, Body: raw}
	return c.enc.Encode(env)
}

func (c *ClientCodec) ReadResponseHeader(r *rpc.Response) error {
	var env envelope
	if err := c.dec.Decode(&env); err != nil {
		return err
	}
	c.mu.Lock()
	method := c.pending[env.Seq]
	delete(c.pending, env.Seq)
	c.mu.Unlock()

	r.ServiceMethod = method
	r.Seq = env.Seq
	r.Error = env.Error
	c.lastResp = env
	return nil
}

func (c *ClientCodec) ReadResponseBody(body interface{}) error {
	if body == nil || len(c.lastResp.Body) == 0 {
		return nil
	}
	return json.Unmarshal(c.lastResp.Body, body)
}

func (c *ClientCodec) Close() error { return c.c.Close() }
