package scaling

import (
	"fmt"
	"net/http"

	"github.com/equinor/radix-release-api/api/utils"
	"github.com/equinor/radix-release-api/models"
	"github.com/gorilla/mux"
)

const servicePath = "/services/{serviceName}"

// StatusReader Read access to the capacity controller state
type StatusReader interface {
	Status(serviceName string) (Status, bool)
}

type scalingController struct {
	*models.DefaultController
	status StatusReader
}

// NewScalingController Constructor
func NewScalingController(status StatusReader) models.Controller {
	return &scalingController{status: status}
}

// GetRoutes List the supported routes of this controller
func (c *scalingController) GetRoutes() models.Routes {
	return models.Routes{
		models.Route{
			Path:                      servicePath + "/scaling",
			Method:                    http.MethodGet,
			HandlerFunc:               c.GetScalingStatus,
			AllowUnauthenticatedUsers: true,
		},
	}
}

// GetScalingStatus Shows the scaling policy and the latest decision of the capacity controller
func (c *scalingController) GetScalingStatus(w http.ResponseWriter, r *http.Request) {
	// swagger:operation GET /services/{serviceName}/scaling scaling getScalingStatus
	// ---
	// summary: Gets the scaling policy and latest capacity decision of a service
	// parameters:
	// - name: serviceName
	//   in: path
	//   description: name of the service
	//   type: string
	//   required: true
	// responses:
	//   "200":
	//     description: "Successful operation"
	//     schema:
	//        "$ref": "#/definitions/ScalingStatus"
	//   "404":
	//     description: "Not found"
	serviceName := mux.Vars(r)["serviceName"]

	status, ok := c.status.Status(serviceName)
	if !ok {
		c.ErrorResponse(w, r, utils.TypeMissingError(fmt.Sprintf("service %s not found", serviceName), ErrUnknownService))
		return
	}
	c.JSONResponse(w, r, status)
}
