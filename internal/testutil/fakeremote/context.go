package fakeremote

import "context"

type requestKey struct{}

func withRequest(ctx context.Context, req authRequest) context.Context {
	return context.WithValue(ctx, requestKey{}, req)
}

func requestFrom(ctx context.Context) authRequest {
	req, _ := ctx.Value(requestKey{}).(authRequest)
	return req
}
