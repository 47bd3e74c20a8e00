package client

import (
	"context"
	"errors"
	"fmt"

	"webdsl/pkg/binding"
	"webdsl/pkg/wire"
)

var errNotObject = errors.New("response is not an object")

// FetchValueFromREST reads attr from the JSON object a REST call returns and converts
// it to attr.Type. Any failure yields fallback.
func (c *Client) FetchValueFromREST(ctx context.Context, req wire.RestCallRequest, attr wire.Attribute, fallback any) any {
	resp, err := c.RestCall(ctx, req)
	if err != nil {
		return fallback
	}
	v, err := attributeValue(resp, attr)
	if err != nil {
		c.notifier.Error(MsgFetchRESTValue + err.Error())
		return fallback
	}
	return v
}

// FetchValueFromDB is FetchValueFromREST for queryDB. When the query returns rows the
// first one is used.
func (c *Client) FetchValueFromDB(ctx context.Context, req wire.DBQueryRequest, attr wire.Attribute, fallback any) any {
	resp, err := c.QueryDB(ctx, req)
	if err != nil {
		return fallback
	}
	if rows, ok := resp.([]any); ok {
		if len(rows) == 0 {
			c.notifier.Error(MsgFetchDBValue + "query returned no rows")
			return fallback
		}
		resp = rows[0]
	}
	v, err := attributeValue(resp, attr)
	if err != nil {
		c.notifier.Error(MsgFetchDBValue + err.Error())
		return fallback
	}
	return v
}

// FetchArrayFromDB returns the rows of a query. A column shaped result
// ({"col": [...], ...}) is turned into rows.
func (c *Client) FetchArrayFromDB(ctx context.Context, req wire.DBQueryRequest) ([]any, error) {
	resp, err := c.QueryDB(ctx, req)
	if err != nil {
		return nil, err
	}
	switch v := resp.(type) {
	case []any:
		return v, nil
	case map[string]any:
		if binding.IsObjectOfLists(v) {
			rows := binding.ObjectOfListsToListOfObjects(v)
			out := make([]any, len(rows))
			for i, r := range rows {
				out[i] = map[string]any(r)
			}
			return out, nil
		}
	}
	err = fmt.Errorf("expected an array, got %T", resp)
	c.notifier.Error(MsgFetchDBValue + err.Error())
	return nil, err
}

func attributeValue(resp any, attr wire.Attribute) (any, error) {
	obj, ok := resp.(map[string]any)
	if !ok {
		return nil, errNotObject
	}
	raw, ok := obj[attr.Name]
	if !ok {
		return nil, fmt.Errorf("attribute %q missing from response", attr.Name)
	}
	v := binding.ConvertTypeValue(raw, attr.Type)
	if binding.IsNaN(v) {
		return nil, fmt.Errorf("cannot convert %v to %s", raw, attr.Type)
	}
	return v, nil
}
