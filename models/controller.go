package models

import (
	"net/http"

	"github.com/equinor/radix-release-api/api/utils"
)

// Controller Pattern of an rest controller
type Controller interface {
	GetRoutes() Routes
}

// DefaultController Default implementation
type DefaultController struct {
}

// ErrorResponse Marshals error for user requester
func (c *DefaultController) ErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	utils.ErrorResponse(w, r, err)
}

// JSONResponse Marshals response with header
func (c *DefaultController) JSONResponse(w http.ResponseWriter, r *http.Request, result interface{}) {
	utils.JSONResponse(w, r, result)
}

// JSONResponseWithCode Marshals response with header and a custom status code
func (c *DefaultController) JSONResponseWithCode(w http.ResponseWriter, r *http.Request, code int, result interface{}) {
	utils.JSONResponseWithCode(w, r, code, result)
}

// ByteArrayResponse Used for raw response data, i.e. artifact content
func (c *DefaultController) ByteArrayResponse(w http.ResponseWriter, r *http.Request, contentType string, result []byte) {
	utils.ByteArrayResponse(w, r, contentType, result)
}
