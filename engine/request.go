package engine

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"eve.evalgo.org/otelscrape/config"
	"eve.evalgo.org/otelscrape/httpclient"
	"eve.evalgo.org/otelscrape/windowplan"
)

// buildRequest assembles the outbound request for one plan unit
// (spec.md §4.6 step 1): the URL is baseUrl+endpoint, the query string
// is the unit's time keys merged with extraArgs (windowplan already
// did that merge), and for a body-carrying method the same extraArgs
// are additionally serialized into the request body under bodyType,
// since a POST-based API commonly expects its filters in the body
// rather than (or in addition to) the query string.
func buildRequest(src config.Source, unit windowplan.Unit, enforceTLS bool) (*httpclient.Request, error) {
	method := strings.ToUpper(src.Method)
	if method == "" {
		method = "GET"
	}

	u := strings.TrimRight(src.BaseURL, "/") + "/" + strings.TrimLeft(src.Endpoint, "/")

	req := httpclient.NewRequest(method, u)
	req.EnforceTLS = enforceTLS
	req.Query = unit.Query

	req.Headers = make(map[string]string, len(src.ExtraHeaders))
	for k, v := range src.ExtraHeaders {
		req.Headers[k] = v
	}

	if bodyCarrying(method) && len(src.ExtraArgs) > 0 {
		body, contentType, err := encodeBody(src.ExtraArgs, src.BodyType)
		if err != nil {
			return nil, fmt.Errorf("engine: encode body for %q: %w", src.Name, err)
		}
		req.Body = body
		req.BodyContentType = contentType
	}

	return req, nil
}

func bodyCarrying(method string) bool {
	switch method {
	case "POST", "PUT", "PATCH":
		return true
	default:
		return false
	}
}

func encodeBody(args map[string]string, bodyType string) ([]byte, string, error) {
	switch bodyType {
	case "json":
		data, err := json.Marshal(args)
		if err != nil {
			return nil, "", err
		}
		return data, "application/json", nil
	case "raw", "":
		form := url.Values{}
		for k, v := range args {
			form.Set(k, v)
		}
		return []byte(form.Encode()), "application/x-www-form-urlencoded", nil
	default:
		return nil, "", fmt.Errorf("unknown bodyType %q", bodyType)
	}
}
