package model

// CreateBatchRequest represents the incoming JSON body for a new bulk order
type CreateBatchRequest struct {
	Orders     []OrderInput `json:"orders" binding:"required,min=1,dive"`
	StartIndex int          `json:"start_index,omitempty" binding:"min=0"`
	Height     int          `json:"height,omitempty" binding:"min=0,max=24"` // 0 = smallest that fits
	Sign       bool         `json:"sign,omitempty"`                          // sign with the gateway key
}

type BatchResponse struct {
	Batch      *Batch   `json:"batch"`
	TypeString string   `json:"type_string"`
	TypeHash   string   `json:"type_hash"`
	Leaves     []string `json:"leaves"`
	// eth_signTypedData_v4 payload for wallets; omitted once signed
	TypedData interface{} `json:"typed_data,omitempty"`
}

type ProofResponse struct {
	BatchID string   `json:"batch_id"`
	Index   int      `json:"index"`
	Leaf    string   `json:"leaf"`
	Proof   []string `json:"proof"`
	Root    string   `json:"root"`
	// signature ‖ uint24 index ‖ proof, present once the batch is signed
	Signature string `json:"signature,omitempty"`
}

type AttachSignatureRequest struct {
	Signature string `json:"signature" binding:"required"`
	Signer    string `json:"signer" binding:"required"`
}

type VerifyRequest struct {
	Order     OrderInput `json:"order" binding:"required"`
	Signature string     `json:"signature" binding:"required"`
	// Defaults to the order's offerer
	Signer string `json:"signer,omitempty"`
}

type VerifyResponse struct {
	Valid     bool   `json:"valid"`
	Method    string `json:"method"` // ecdsa or eip1271
	Bulk      bool   `json:"bulk"`
	OrderHash string `json:"order_hash"`
	Recovered string `json:"recovered,omitempty"`
	Index     *int   `json:"index,omitempty"`
	Height    int    `json:"height,omitempty"`
}

type TypeHashEntry struct {
	Height   int    `json:"height"`
	TypeHash string `json:"type_hash"`
}

type TypeHashesResponse struct {
	Hashes []TypeHashEntry `json:"hashes"`
}

type DirectoryResponse struct {
	MaxHeight int    `json:"max_height"`
	Code      string `json:"code"`
	CodeHash  string `json:"code_hash"`
}
