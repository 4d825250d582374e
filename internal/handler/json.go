package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

const maxBodySize = 64 << 10

func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	fn(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(status) })
			e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
		})
	})
}

// writeInternal logs err and responds with an opaque 500.
func writeInternal(w http.ResponseWriter, r *http.Request, err error) {
	zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

// decodeObject iterates the fields of the JSON object in the request body.
func decodeObject(r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	d := jx.Decode(io.LimitReader(r.Body, maxBodySize), 512)
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		return fn(d, string(key))
	}); err != nil {
		return errors.Wrap(err, "decode body")
	}
	return nil
}

// decodeOptString reads a string that may be null. Null counts as absent.
func decodeOptString(d *jx.Decoder) (string, bool, error) {
	if d.Next() == jx.Null {
		return "", false, d.Null()
	}
	v, err := d.Str()
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}
