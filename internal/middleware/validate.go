package middleware

import (
	"encoding/json"
	"io"

	"github.com/go-playground/validator/v10"

	"github.com/ripta/corehttp/internal/httpenv"
	"github.com/ripta/corehttp/internal/pipeline"
)

var validatorInstance = validator.New()

// DecodedBodyEnvKey is where ValidateJSON stores the decoded, validated
// request body for downstream handlers.
const DecodedBodyEnvKey = "request.body"

// ValidateJSON returns middleware that decodes the buffered request body
// into a fresh value of the type newTarget returns, runs struct-tag
// validation over it, and rejects the request with 400 on either failure.
// adapter.input arrives as KindBytes on the queue transport and KindStream
// on the HTTP socket transport (spec §4.2/§4.4/§4.5); both are accepted,
// a stream is simply read to completion first.
func ValidateJSON(newTarget func() any) pipeline.Middleware {
	return func(next pipeline.Handler) pipeline.Handler {
		return func(env *httpenv.Env) (httpenv.Response, error) {
			v, ok := env.Get("adapter.input")
			if !ok {
				return badRequest("request body required"), nil
			}

			var raw []byte
			switch v.Kind {
			case httpenv.KindBytes:
				raw = v.Bytes
			case httpenv.KindStream:
				buf, err := io.ReadAll(v.Stream)
				if err != nil {
					return badRequest("failed to read request body"), nil
				}
				raw = buf
			default:
				return badRequest("request body required"), nil
			}

			target := newTarget()
			if err := json.Unmarshal(raw, target); err != nil {
				return badRequest("malformed JSON body"), nil
			}
			if err := validatorInstance.Struct(target); err != nil {
				return badRequest(err.Error()), nil
			}

			env.Set(DecodedBodyEnvKey, httpenv.Any(target))
			return next(env)
		}
	}
}

func badRequest(message string) httpenv.Response {
	return httpenv.Response{
		Status: 400,
		Body:   httpenv.BufferBody([]byte(message)),
	}
}
