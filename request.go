package alight

// CreateRequestType valid types are NodeRequestType "node", LeafRequestType "leaf"
type CreateRequestType string

const (
	NodeRequestType CreateRequestType = "node"
	LeafRequestType CreateRequestType = "leaf"
)

// CreateRequest is implemented by all create request types
type CreateRequest interface {
	GetType() CreateRequestType
	GetAddress() string
}

// NodeCreateRequest asks for a container at Address, creating intermediates
type NodeCreateRequest struct {
	Address string
}

// LeafCreateRequest asks for a leaf holding Content at Address
type LeafCreateRequest struct {
	Address string
	Content string
}

func (r *NodeCreateRequest) GetType() CreateRequestType { return NodeRequestType }
func (r *NodeCreateRequest) GetAddress() string         { return r.Address }
func (r *LeafCreateRequest) GetType() CreateRequestType { return LeafRequestType }
func (r *LeafCreateRequest) GetAddress() string         { return r.Address }
