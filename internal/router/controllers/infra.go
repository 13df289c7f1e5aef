package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/esdx-scion/esdx/buildinfo"
)

// InfraController handles service-infrastructure endpoints.
type InfraController struct{}

// NewInfraController creates a new InfraController.
func NewInfraController() *InfraController {
	return &InfraController{}
}

// Version returns the version information of the running binary.
func (c *InfraController) Version(rw http.ResponseWriter, _ *http.Request) {
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(buildinfo.GetSummary())
}
