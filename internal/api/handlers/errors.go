package handlers

import (
	"errors"
	"net/http"

	"energy-dispatch/internal/api/models"
	"energy-dispatch/internal/solver"

	"github.com/gin-gonic/gin"
)

func abortWithError(c *gin.Context, status int, code string, err error) {
	c.AbortWithStatusJSON(status, models.ErrorResponse{
		Error: models.ErrorDetail{
			Code:    code,
			Message: err.Error(),
		},
	})
}

// abortWithSolveError maps a failed solve to a response. Infeasible and
// unbounded models are the caller's problem, anything else is ours.
func abortWithSolveError(c *gin.Context, err error) {
	var se *solver.SolverError
	if !errors.As(err, &se) {
		abortWithError(c, http.StatusInternalServerError, "SOLVE_ERROR", err)
		return
	}
	status := http.StatusInternalServerError
	switch se.Status {
	case solver.Infeasible, solver.Unbounded:
		status = http.StatusUnprocessableEntity
	case solver.Limit:
		status = http.StatusGatewayTimeout
	}
	c.AbortWithStatusJSON(status, models.ErrorResponse{
		Error: models.ErrorDetail{
			Code:    "SOLVER_" + string(se.Status),
			Message: se.Error(),
			Details: map[string]interface{}{
				"solver": se.Solver,
				"status": se.Status,
			},
		},
	})
}
