package client

import (
	"fmt"

	"github.com/dmitrijs2005/hammerspace/internal/client/models"
	"google.golang.org/protobuf/types/known/structpb"
)

// DirectoryType is the "type" value the service uses for folders; files
// carry their MIME type in the same field.
const DirectoryType = "Directory"

// Node is one entry of the remote tree snapshot.
type Node struct {
	ID        string `json:"id"`
	ParentDir string `json:"parentDir"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	FileSize  int64  `json:"fileSize"`
	UserID    string `json:"userID"`
	Shared    bool   `json:"shared,omitempty"`
}

// TreeResponse is the body of a tree snapshot.
type TreeResponse struct {
	Folders []Node `json:"folders"`
}

// Item converts a node into the local variant.
func (n Node) Item() (models.Item, error) {
	var it models.Item
	if n.Type == DirectoryType {
		it = models.NewFolder(n.ID, n.ParentDir, n.Name, n.UserID, n.Shared)
	} else {
		it = models.NewFile(n.ID, n.ParentDir, n.Name, n.UserID, n.Type, n.FileSize)
	}
	if err := it.Validate(); err != nil {
		return models.Item{}, fmt.Errorf("remote node %q: %w", n.ID, err)
	}
	return it, nil
}

// NodeFromItem is the inverse of Node.Item.
func NodeFromItem(it models.Item) Node {
	n := Node{ID: it.ID, ParentDir: it.ParentID, Name: it.Name, UserID: it.OwnerID, Shared: it.Shared}
	if it.IsFolder() {
		n.Type = DirectoryType
	} else {
		n.Type = it.MimeType()
		n.FileSize = it.SizeBytes()
	}
	return n
}

// Struct encodes the node for the gRPC transport.
func (n Node) Struct() *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"id":        structpb.NewStringValue(n.ID),
		"parentDir": structpb.NewStringValue(n.ParentDir),
		"name":      structpb.NewStringValue(n.Name),
		"type":      structpb.NewStringValue(n.Type),
		"fileSize":  structpb.NewNumberValue(float64(n.FileSize)),
		"userID":    structpb.NewStringValue(n.UserID),
		"shared":    structpb.NewBoolValue(n.Shared),
	}}
}

// NodeFromStruct decodes a node sent over gRPC. Missing fields stay zero.
func NodeFromStruct(s *structpb.Struct) Node {
	f := s.GetFields()
	return Node{
		ID:        f["id"].GetStringValue(),
		ParentDir: f["parentDir"].GetStringValue(),
		Name:      f["name"].GetStringValue(),
		Type:      f["type"].GetStringValue(),
		FileSize:  int64(f["fileSize"].GetNumberValue()),
		UserID:    f["userID"].GetStringValue(),
		Shared:    f["shared"].GetBoolValue(),
	}
}

func itemsFromNodes(nodes []Node) ([]models.Item, error) {
	out := make([]models.Item, 0, len(nodes))
	for _, n := range nodes {
		it, err := n.Item()
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, nil
}
