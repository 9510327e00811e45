package http

import (
	"time"

	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/model"
)

// ServerResponse is the envelope every account endpoint answers with.
type ServerResponse struct {
	Status  model.ResponseCode `json:"status"`
	Message string             `json:"message,omitempty"`
	Token   string             `json:"token,omitempty"`
	Data    any                `json:"data,omitempty"`
}

// codeData is returned by the start-* endpoints. Validation is only filled when
// the router is configured to expose codes.
type codeData struct {
	Validation string    `json:"validation,omitempty"`
	Expires    time.Time `json:"expires"`
}
