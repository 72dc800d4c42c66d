package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/hammerspace/internal/client/models"
	"github.com/dmitrijs2005/hammerspace/internal/client/vault"
	"github.com/dmitrijs2005/hammerspace/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the gRPC service exposing the storage API. Requests are
// google.protobuf.Struct messages; binary answers are BytesValue.
const ServiceName = "hammerspace.v1.Storage"

const (
	MethodSignup                = "/" + ServiceName + "/Signup"
	MethodLogin                 = "/" + ServiceName + "/Login"
	MethodLogout                = "/" + ServiceName + "/Logout"
	MethodGetTree               = "/" + ServiceName + "/GetTree"
	MethodGetFile               = "/" + ServiceName + "/GetFile"
	MethodGetEncryptedFolderKey = "/" + ServiceName + "/GetEncryptedFolderKey"
	MethodShareFolder           = "/" + ServiceName + "/ShareFolder"
	MethodCreateFolder          = "/" + ServiceName + "/CreateFolder"
	MethodRenameItem            = "/" + ServiceName + "/RenameItem"
	MethodRemoveItem            = "/" + ServiceName + "/RemoveItem"
	MethodUploadFile            = "/" + ServiceName + "/UploadFile"
)

// GRPCClient is the gRPC transport of Client.
type GRPCClient struct {
	sessionHolder

	endpointURL string
	conn        *grpc.ClientConn
	cc          grpc.ClientConnInterface
}

var _ Client = (*GRPCClient)(nil)

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AccessTokenHeaderName, token)

	return metadata.NewOutgoingContext(ctx, md)
}

func (c *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if token := c.Session().AuthToken; token != "" && method != MethodLogin && method != MethodSignup {
		ctx = withAccessToken(ctx, token)
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}

func NewGRPCClient(endpointURL string, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL}

	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(endpointURL, opts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.cc = conn
	return c, nil
}

func (c *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%w: %s", common.ErrUnauthorized, st.Message())
	case codes.AlreadyExists:
		return fmt.Errorf("%w: %s", common.ErrAlreadyExists, st.Message())
	case codes.NotFound:
		return fmt.Errorf("%w: %s", common.ErrNotFound, st.Message())
	case codes.FailedPrecondition:
		return fmt.Errorf("%w: %s", common.ErrProcessing, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", common.ErrUnavailable, st.Message())
	case codes.Canceled:
		return context.Canceled
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}

func (c *GRPCClient) invoke(ctx context.Context, method string, req map[string]any, reply proto.Message) error {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", method, err)
	}
	return c.mapError(c.cc.Invoke(ctx, method, in, reply))
}

func (c *GRPCClient) authed(extra map[string]any) (map[string]any, error) {
	s, err := c.authorized()
	if err != nil {
		return nil, err
	}
	req := map[string]any{"userID": s.UserID}
	for k, v := range extra {
		req[k] = v
	}
	return req, nil
}

// start turns a Login or Signup reply into the current session.
func (c *GRPCClient) start(userID string, out *structpb.Struct) (Session, error) {
	s := Session{
		UserID:    out.GetFields()["userID"].GetStringValue(),
		AuthToken: out.GetFields()["authToken"].GetStringValue(),
	}
	if s.AuthToken == "" {
		return Session{}, fmt.Errorf("%w: empty token", common.ErrUnauthorized)
	}
	if s.UserID == "" {
		s.UserID = userID
	}
	c.SetSession(s)
	return s, nil
}

func (c *GRPCClient) Register(ctx context.Context, userID, email, password string, r vault.Recipient) (Session, error) {
	if r == "" {
		return Session{}, errors.New("register: empty recipient")
	}

	out := &structpb.Struct{}
	req := map[string]any{
		"userID":    userID,
		"email":     email,
		"password":  password,
		"publicKey": string(r),
	}
	if err := c.invoke(ctx, MethodSignup, req, out); err != nil {
		return Session{}, err
	}
	return c.start(userID, out)
}

func (c *GRPCClient) Login(ctx context.Context, userID, password string) (Session, error) {
	out := &structpb.Struct{}
	if err := c.invoke(ctx, MethodLogin, map[string]any{"userID": userID, "password": password}, out); err != nil {
		return Session{}, err
	}
	return c.start(userID, out)
}

func (c *GRPCClient) Logout(ctx context.Context) error {
	s := c.Session()
	if s.AuthToken == "" {
		return nil
	}
	defer c.SetSession(Session{})
	return c.invoke(ctx, MethodLogout, map[string]any{"userID": s.UserID}, &emptypb.Empty{})
}

func (c *GRPCClient) GetTree(ctx context.Context) ([]models.Item, error) {
	req, err := c.authed(nil)
	if err != nil {
		return nil, err
	}

	out := &structpb.Struct{}
	if err := c.invoke(ctx, MethodGetTree, req, out); err != nil {
		return nil, err
	}

	values := out.GetFields()["folders"].GetListValue().GetValues()
	nodes := make([]Node, 0, len(values))
	for _, v := range values {
		nodes = append(nodes, NodeFromStruct(v.GetStructValue()))
	}
	return itemsFromNodes(nodes)
}

func (c *GRPCClient) getBytes(ctx context.Context, method string, req map[string]any) ([]byte, error) {
	out := &wrapperspb.BytesValue{}
	if err := c.invoke(ctx, method, req, out); err != nil {
		return nil, err
	}
	return out.GetValue(), nil
}

func (c *GRPCClient) GetFile(ctx context.Context, itemID string) (io.ReadCloser, error) {
	req, err := c.authed(map[string]any{"fileID": itemID})
	if err != nil {
		return nil, err
	}
	b, err := c.getBytes(ctx, MethodGetFile, req)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (c *GRPCClient) GetEncryptedFolderKey(ctx context.Context, folderID string) ([]byte, error) {
	req, err := c.authed(map[string]any{"folderID": folderID})
	if err != nil {
		return nil, err
	}
	return c.getBytes(ctx, MethodGetEncryptedFolderKey, req)
}

func (c *GRPCClient) ShareFolder(ctx context.Context, folderID string, recipients []string) error {
	users := make([]any, 0, len(recipients))
	for _, r := range recipients {
		users = append(users, r)
	}
	req, err := c.authed(map[string]any{"dirID": folderID, "withUserIDs": users})
	if err != nil {
		return err
	}
	return c.invoke(ctx, MethodShareFolder, req, &emptypb.Empty{})
}

func (c *GRPCClient) CreateFolder(ctx context.Context, id, parentID, name string) error {
	req, err := c.authed(map[string]any{"dirID": id, "parentDir": parentID, "dirName": name})
	if err != nil {
		return err
	}
	return c.invoke(ctx, MethodCreateFolder, req, &emptypb.Empty{})
}

func (c *GRPCClient) RenameItem(ctx context.Context, id, newName string) error {
	req, err := c.authed(map[string]any{"itemID": id, "newName": newName})
	if err != nil {
		return err
	}
	return c.invoke(ctx, MethodRenameItem, req, &emptypb.Empty{})
}

func (c *GRPCClient) RemoveItem(ctx context.Context, item models.Item) error {
	req, err := c.authed(map[string]any{"itemID": item.ID, "kind": string(item.Kind)})
	if err != nil {
		return err
	}
	return c.invoke(ctx, MethodRemoveItem, req, &emptypb.Empty{})
}

// UploadFile sends the ciphertext inside the request struct. Struct has no
// bytes kind, so the payload travels base64 encoded.
func (c *GRPCClient) UploadFile(ctx context.Context, u Upload) error {
	req, err := c.authed(map[string]any{
		"fileID":    u.ID,
		"parentDir": u.ParentID,
		"name":      u.Name,
		"mimeType":  u.MimeType,
		"size":      float64(u.SizeBytes),
		"content":   base64.StdEncoding.EncodeToString(u.Ciphertext),
	})
	if err != nil {
		return err
	}
	return c.invoke(ctx, MethodUploadFile, req, &emptypb.Empty{})
}

func (c *GRPCClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
