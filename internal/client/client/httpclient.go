package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/hammerspace/internal/client/models"
	"github.com/dmitrijs2005/hammerspace/internal/client/vault"
	"github.com/dmitrijs2005/hammerspace/internal/common"
	"github.com/dmitrijs2005/hammerspace/internal/netx"
)

// Messages the service puts in the "error" field of a failed response.
const (
	msgFileNotFound  = "File not found"
	msgDirNotFound   = "Directory doesn't exist"
	msgProcessing    = "File is being processed, try again later"
	msgInvalidToken  = "Invalid authToken"
	msgInvalidCreds  = "Invalid Credentials"
	msgNoCredentials = "Authentication Missing"
	msgUserTaken     = "UserID already taken"
)

const (
	maxJSONBody       = 16 << 20
	maxWrappedKeySize = 64 << 10
	ciphertextType    = "application/vnd.age"
)

// HTTPClient talks to the JSON-over-POST API of the storage service.
type HTTPClient struct {
	sessionHolder

	baseURL string
	hc      *http.Client
}

var _ Client = (*HTTPClient)(nil)

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Timeout: timeout},
	}
}

type envelope struct {
	Success *bool  `json:"success"`
	Error   string `json:"error"`
}

type authBody struct {
	UserID    string `json:"userID"`
	AuthToken string `json:"authToken"`
}

// mapStatus turns a failed response into the shared error taxonomy.
func mapStatus(status int, msg string) error {
	switch msg {
	case msgFileNotFound, msgDirNotFound:
		return fmt.Errorf("%w: %s", common.ErrNotFound, msg)
	case msgProcessing:
		return fmt.Errorf("%w: %s", common.ErrProcessing, msg)
	case msgInvalidToken, msgInvalidCreds, msgNoCredentials:
		return fmt.Errorf("%w: %s", common.ErrUnauthorized, msg)
	case msgUserTaken:
		return fmt.Errorf("%w: %s", common.ErrAlreadyExists, msg)
	}

	switch {
	case status == http.StatusNotFound || status == http.StatusGone:
		return fmt.Errorf("%w: %s", common.ErrNotFound, msg)
	case status == http.StatusAccepted || status == http.StatusConflict ||
		status == http.StatusLocked || status == http.StatusTooEarly:
		return fmt.Errorf("%w: %s", common.ErrProcessing, msg)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %s", common.ErrUnauthorized, msg)
	case status >= 500:
		return fmt.Errorf("%w: status %d: %s", common.ErrUnavailable, status, msg)
	default:
		return fmt.Errorf("request failed: status %d: %s", status, msg)
	}
}

func transportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %w", common.ErrUnavailable, err)
}

func (c *HTTPClient) post(ctx context.Context, path string, body any) (*http.Response, error) {
	resp, err := netx.PostJSON(ctx, c.hc, c.baseURL+path, body)
	if err != nil {
		return nil, transportError(err)
	}
	return resp, nil
}

func isJSON(resp *http.Response) bool {
	mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	return mt == "application/json"
}

// decodeFailure reads a failed response and maps it.
func decodeFailure(resp *http.Response) error {
	raw, _ := netx.ReadLimited(resp.Body, maxJSONBody)
	var env envelope
	_ = json.Unmarshal(raw, &env)
	return mapStatus(resp.StatusCode, env.Error)
}

// callJSON POSTs body and decodes the JSON answer into out, treating
// {"success": false} as a failure regardless of status.
func (c *HTTPClient) callJSON(ctx context.Context, path string, body, out any) error {
	resp, err := c.post(ctx, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeFailure(resp)
	}

	raw, err := netx.ReadLimited(resp.Body, maxJSONBody)
	if err != nil {
		return transportError(err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	if env.Success != nil && !*env.Success {
		return mapStatus(resp.StatusCode, env.Error)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// callBinary POSTs body and returns the raw response for a successful binary
// answer. JSON answers are always failures.
func (c *HTTPClient) callBinary(ctx context.Context, path string, body any) (*http.Response, error) {
	resp, err := c.post(ctx, path, body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK || isJSON(resp) {
		defer resp.Body.Close()
		return nil, decodeFailure(resp)
	}
	return resp, nil
}

type sessionReply struct {
	UserID    string `json:"userID"`
	AuthToken string `json:"authToken"`
}

// start turns a login or signup answer into the current session.
func (c *HTTPClient) start(userID string, out sessionReply) (Session, error) {
	if out.AuthToken == "" {
		return Session{}, fmt.Errorf("%w: empty token", common.ErrUnauthorized)
	}

	s := Session{UserID: out.UserID, AuthToken: out.AuthToken}
	if s.UserID == "" {
		s.UserID = userID
	}
	c.SetSession(s)
	return s, nil
}

func (c *HTTPClient) Register(ctx context.Context, userID, email, password string, r vault.Recipient) (Session, error) {
	if r == "" {
		return Session{}, errors.New("register: empty recipient")
	}

	var out sessionReply
	body := map[string]string{
		"userID":    userID,
		"email":     email,
		"password":  password,
		"publicKey": string(r),
	}
	if err := c.callJSON(ctx, "/signup", body, &out); err != nil {
		return Session{}, err
	}
	return c.start(userID, out)
}

func (c *HTTPClient) Login(ctx context.Context, userID, password string) (Session, error) {
	var out sessionReply
	err := c.callJSON(ctx, "/login", map[string]string{"userID": userID, "password": password}, &out)
	if err != nil {
		return Session{}, err
	}
	return c.start(userID, out)
}

func (c *HTTPClient) Logout(ctx context.Context) error {
	s := c.Session()
	if s.AuthToken == "" {
		return nil
	}
	defer c.SetSession(Session{})
	return c.callJSON(ctx, "/logout", authBody{UserID: s.UserID, AuthToken: s.AuthToken}, nil)
}

func (c *HTTPClient) GetTree(ctx context.Context) ([]models.Item, error) {
	s, err := c.authorized()
	if err != nil {
		return nil, err
	}

	var out TreeResponse
	if err := c.callJSON(ctx, "/sync", authBody{UserID: s.UserID, AuthToken: s.AuthToken}, &out); err != nil {
		return nil, err
	}
	return itemsFromNodes(out.Folders)
}

func (c *HTTPClient) GetFile(ctx context.Context, itemID string) (io.ReadCloser, error) {
	s, err := c.authorized()
	if err != nil {
		return nil, err
	}

	resp, err := c.callBinary(ctx, "/getFile", struct {
		authBody
		FileID string `json:"fileID"`
	}{authBody{s.UserID, s.AuthToken}, itemID})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *HTTPClient) GetEncryptedFolderKey(ctx context.Context, folderID string) ([]byte, error) {
	s, err := c.authorized()
	if err != nil {
		return nil, err
	}

	resp, err := c.callBinary(ctx, "/getEncryptedFolderKey", struct {
		authBody
		FolderID string `json:"folderID"`
	}{authBody{s.UserID, s.AuthToken}, folderID})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	wrapped, err := netx.ReadLimited(resp.Body, maxWrappedKeySize)
	if err != nil {
		return nil, transportError(err)
	}
	return wrapped, nil
}

func (c *HTTPClient) ShareFolder(ctx context.Context, folderID string, recipients []string) error {
	s, err := c.authorized()
	if err != nil {
		return err
	}

	for _, r := range recipients {
		err := c.callJSON(ctx, "/shareDir", struct {
			authBody
			DirID      string `json:"dirID"`
			WithUserID string `json:"withUserID"`
			ReadOnly   bool   `json:"isReadOnly"`
		}{authBody{s.UserID, s.AuthToken}, folderID, r, false}, nil)
		if err != nil {
			return fmt.Errorf("share %s with %s: %w", folderID, r, err)
		}
	}
	return nil
}

func (c *HTTPClient) CreateFolder(ctx context.Context, id, parentID, name string) error {
	s, err := c.authorized()
	if err != nil {
		return err
	}

	return c.callJSON(ctx, "/createDir", struct {
		authBody
		DirID     string `json:"dirID"`
		DirName   string `json:"dirName"`
		ParentDir string `json:"parentDir"`
	}{authBody{s.UserID, s.AuthToken}, id, name, parentID}, nil)
}

func (c *HTTPClient) RenameItem(ctx context.Context, id, newName string) error {
	s, err := c.authorized()
	if err != nil {
		return err
	}

	return c.callJSON(ctx, "/renameItem", struct {
		authBody
		ItemID  string `json:"itemID"`
		NewName string `json:"newName"`
	}{authBody{s.UserID, s.AuthToken}, id, newName}, nil)
}

func (c *HTTPClient) RemoveItem(ctx context.Context, item models.Item) error {
	s, err := c.authorized()
	if err != nil {
		return err
	}

	if item.IsFolder() {
		return c.callJSON(ctx, "/removeDir", struct {
			authBody
			DirID string `json:"dirID"`
		}{authBody{s.UserID, s.AuthToken}, item.ID}, nil)
	}
	return c.callJSON(ctx, "/removeFile", struct {
		authBody
		FileID string `json:"fileID"`
	}{authBody{s.UserID, s.AuthToken}, item.ID}, nil)
}

func (c *HTTPClient) UploadFile(ctx context.Context, u Upload) error {
	s, err := c.authorized()
	if err != nil {
		return err
	}

	fields := map[string]string{
		"userID":    s.UserID,
		"authToken": s.AuthToken,
		"parentDir": u.ParentID,
		"fileID":    u.ID,
		"mimeType":  u.MimeType,
		"size":      strconv.FormatInt(u.SizeBytes, 10),
	}
	resp, err := netx.PostMultipart(ctx, c.hc, c.baseURL+"/uploadFile", fields, netx.FilePart{
		Field:       "file",
		FileName:    u.Name,
		ContentType: ciphertextType,
		Content:     u.Ciphertext,
	})
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeFailure(resp)
	}

	raw, err := netx.ReadLimited(resp.Body, maxJSONBody)
	if err != nil {
		return transportError(err)
	}
	var out struct {
		envelope
		FileID string `json:"fileID"`
	}
	if err := json.NewDecoder(bytes.NewReader(raw)).Decode(&out); err != nil {
		return fmt.Errorf("failed to decode upload response: %w", err)
	}
	if out.Success != nil && !*out.Success {
		return mapStatus(resp.StatusCode, out.Error)
	}
	if out.FileID != "" && out.FileID != u.ID {
		return fmt.Errorf("upload of %s: server assigned id %s", u.ID, out.FileID)
	}
	return nil
}

func (c *HTTPClient) Close() error {
	c.hc.CloseIdleConnections()
	return nil
}
