package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/schema"
	"github.com/lomect/accountd/internal/errorz"
)

// maxBodyBytes limits the size of request bodies.
const maxBodyBytes = 1 << 20

// mapper is a generic HTTP handler that maps requests to target
// function calls and writes the output to the response.
type mapper[IN, OUT any] struct {
	s      *Server
	req    func(*http.Request) (IN, error)
	target func(context.Context, IN) (OUT, error)
	res    func(result[IN, OUT]) error
}

// result is the result of a succesful request.
// it contains all relevant data because we can't know
// in advance what we will need to construct a response.
type result[IN, OUT any] struct {
	s   *Server
	r   *http.Request
	w   http.ResponseWriter
	in  IN
	out OUT
}

// mapBoth creates a HTTP Handler that:
// 1. Maps the request to a value of input type IN.
// 2. Calls the target func with that value.
// 3. Writes the output of type OUT as the envelope data.
//
// Errors are written using the server error handler.
func mapBoth[IN, OUT any](s *Server, targetFunc func(context.Context, IN) (OUT, error)) *mapper[IN, OUT] {
	return &mapper[IN, OUT]{
		s: s,
		req: func(r *http.Request) (IN, error) {
			return jsonRequest[IN](r)
		},
		target: targetFunc,
		res: func(r result[IN, OUT]) error {
			r.s.writeOK(r.w, r.r, r.out)
			return nil
		},
	}
}

// mapRequest creates a HTTP Handler that:
// 1. Maps the request to a value of type IN.
// 2. Calls the target func with that value.
// 3. Writes an envelope without data if the target func was successful.
//
// Errors are written using the server error handler.
func mapRequest[IN any](s *Server, targetFunc func(context.Context, IN) error) *mapper[IN, struct{}] {
	return &mapper[IN, struct{}]{
		s: s,
		req: func(r *http.Request) (IN, error) {
			return jsonRequest[IN](r)
		},
		target: func(ctx context.Context, in IN) (struct{}, error) {
			return struct{}{}, targetFunc(ctx, in)
		},
		res: func(r result[IN, struct{}]) error {
			r.s.writeOK(r.w, r.r, nil)
			return nil
		},
	}
}

// request overwrites the function that maps the request to the input type.
func (e *mapper[IN, OUT]) request(fn func(r *http.Request) (IN, error)) *mapper[IN, OUT] {
	e.req = fn
	return e
}

// response overwrites the function that writes the output to the response.
func (e *mapper[IN, OUT]) response(fn func(result[IN, OUT]) error) *mapper[IN, OUT] {
	e.res = fn
	return e
}

func (e *mapper[IN, OUT]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	in, err := e.req(r)
	if err != nil {
		e.s.handleError(w, r, err)
		return
	}

	out, err := e.target(r.Context(), in)
	if err != nil {
		e.s.handleError(w, r, err)
		return
	}

	result := result[IN, OUT]{
		s:   e.s,
		r:   r,
		w:   w,
		in:  in,
		out: out,
	}

	err = e.res(result)
	if err != nil {
		e.s.handleError(w, r, err)
		return
	}
}

// jsonRequest decodes the JSON request body into a value of type T.
func jsonRequest[T any](r *http.Request) (T, error) {
	var v T

	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	err := dec.Decode(&v)
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("empty request body")
		}
		return v, errorz.InvalidInput{fmt.Errorf("malformed json: %w", err)}
	}

	return v, nil
}

// parsedJSON decodes the JSON body into a request type and parses
// that into the input of a target function.
func parsedJSON[REQ, IN any](parse func(REQ) (IN, error)) func(*http.Request) (IN, error) {
	return func(r *http.Request) (IN, error) {
		req, err := jsonRequest[REQ](r)
		if err != nil {
			var zero IN
			return zero, err
		}

		return parse(req)
	}
}

// queryRequest decodes the URL query into a value of type T.
func queryRequest[T any](s *Server, r *http.Request) (T, error) {
	var v T
	err := s.decoder.Decode(&v, r.URL.Query())
	return v, decodeError(err)
}

func decodeError(err error) error {
	if err == nil {
		return nil
	}

	var multiErr schema.MultiError
	if errors.As(err, &multiErr) {
		var invalidInput errorz.InvalidInput
		for key, e := range multiErr {
			invalidInput = append(invalidInput, errorz.Keyed{
				Key: key,
				Err: e,
			})
		}

		return invalidInput
	}

	return err
}

// parseField parses raw with parse, and records a keyed error in invalid
// if that fails.
func parseField[T any](invalid *errorz.InvalidInput, key, raw string, parse func(string) (T, error)) T {
	v, err := parse(raw)
	if err != nil {
		*invalid = append(*invalid, errorz.Keyed{Key: key, Err: err})
	}
	return v
}
