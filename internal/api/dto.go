package api

import (
	"github.com/starford/vcq/internal/contactservice"
)

// ContactItem is one matching record together with its rendered line.
type ContactItem struct {
	Mail        string `json:"mail" example:"jane@x.com" validate:"required"`
	Name        string `json:"name" example:"Jane Doe"`
	Description string `json:"description" example:"vip; friend"`
	Line        string `json:"line" example:"jane@x.com\tJane Doe\tvip; friend" validate:"required"`
}

// ContactListResponse wraps query results.
type ContactListResponse struct {
	Contacts []ContactItem `json:"contacts" validate:"required"`
	Total    int           `json:"total" example:"42" validate:"required"`
}

// DirectoryInfo is the state of one configured directory (aliased from the domain layer).
type DirectoryInfo = contactservice.DirectoryInfo

// DirectoryListResponse wraps directory states.
type DirectoryListResponse struct {
	Directories []DirectoryInfo `json:"directories" validate:"required"`
}
