package flow

import (
	"bytes"
	"encoding/json"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/oapi-codegen/runtime"
)

// orderResponse covers both envelopes the host checkout endpoint answers with:
// {"success":true,"data":{...}} and {"result":"success","redirect":"..."}.
type orderResponse struct {
	Success  *bool           `json:"success,omitempty"`
	Result   string          `json:"result,omitempty"`
	Redirect string          `json:"redirect,omitempty"`
	OrderID  flexibleID      `json:"order_id,omitempty"`
	OrderKey string          `json:"order_key,omitempty"`
	Messages string          `json:"messages,omitempty"`
	Message  string          `json:"message,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// flexibleID accepts ids encoded as strings or numbers.
type flexibleID string

func (id *flexibleID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = flexibleID(n.String())
	return nil
}

// parseOrderResponse normalizes the checkout response into an order reference.
func parseOrderResponse(raw json.RawMessage) (*OrderReference, error) {
	var resp orderResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, newError(OrderError, CodeMalformedResponse, msgOrderFailed, withCause(err))
	}
	if data := bytes.TrimSpace(resp.Data); len(data) > 0 && data[0] == '{' {
		merged, err := runtime.JSONMerge(raw, resp.Data)
		if err != nil {
			return nil, newError(OrderError, CodeMalformedResponse, msgOrderFailed, withCause(err))
		}
		resp = orderResponse{}
		if err := json.Unmarshal(merged, &resp); err != nil {
			return nil, newError(OrderError, CodeMalformedResponse, msgOrderFailed, withCause(err))
		}
	}

	if (resp.Success != nil && !*resp.Success) || resp.Result == "failure" {
		return nil, newError(OrderError, CodeCheckoutRejected, resp.serverMessage())
	}

	ref := &OrderReference{OrderID: string(resp.OrderID), OrderKey: resp.OrderKey}
	if resp.Redirect != "" {
		id, key := referenceFromRedirect(resp.Redirect)
		if ref.OrderID == "" {
			ref.OrderID = id
		}
		if ref.OrderKey == "" {
			ref.OrderKey = key
		}
	}
	if ref.OrderID == "" {
		return nil, newError(OrderError, CodeMalformedResponse, msgOrderFailed)
	}
	return ref, nil
}

func (r orderResponse) serverMessage() string {
	for _, msg := range []string{r.Messages, r.Message} {
		if msg = stripTags(msg); msg != "" {
			return msg
		}
	}
	if s := stringData(r.Data); s != "" {
		return s
	}
	return msgOrderFailed
}

func stringData(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return stripTags(s)
}

// referenceFromRedirect recovers the order id and key from a receipt or pay URL such as
// /checkout/order-received/123/?key=wc_order_abc.
func referenceFromRedirect(raw string) (id, key string) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", ""
	}
	q := u.Query()
	key = q.Get("key")
	if id = q.Get("order_id"); id != "" {
		return id, key
	}
	if id = q.Get("order-received"); id != "" {
		return id, key
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, seg := range segments {
		if (seg == "order-received" || seg == "order-pay") && i+1 < len(segments) {
			if _, err := strconv.ParseUint(segments[i+1], 10, 64); err == nil {
				return segments[i+1], key
			}
		}
	}
	return "", key
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// stripTags removes markup from server notices.
func stripTags(s string) string {
	return strings.Join(strings.Fields(tagPattern.ReplaceAllString(s, " ")), " ")
}
