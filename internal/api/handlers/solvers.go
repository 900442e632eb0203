package handlers

import (
	"net/http"

	"energy-dispatch/internal/api/models"
	"energy-dispatch/internal/solver"

	"github.com/gin-gonic/gin"
)

var solverDescriptions = map[string]string{
	"builtin": "Bounded dual-simplex with branch and bound for integer variables. Reports duals for pure LPs.",
	"simplex": "Alias of builtin.",
	"cbc":     "COIN-OR CBC via the cbc binary. Solver options are passed as -key value.",
	"glpk":    "GLPK via the glpsol binary.",
	"gurobi":  "Gurobi via the gurobi_cl binary. Solver options are passed as key=value.",
	"cplex":   "IBM CPLEX via the interactive cplex binary. Solver options are issued as set commands.",
}

var builtinOptions = []models.ParameterInfo{
	{
		Name:        "max_iter",
		Type:        "int",
		Description: "Simplex iteration limit per LP",
		Default:     1000000,
	},
	{
		Name:        "max_nodes",
		Type:        "int",
		Description: "Branch and bound node limit",
		Default:     100000,
	},
	{
		Name:        "mip_gap",
		Type:        "float",
		Description: "Relative gap at which branch and bound stops",
		Default:     1e-9,
	},
	{
		Name:        "int_tol",
		Type:        "float",
		Description: "Integrality tolerance",
		Default:     1e-6,
	},
}

// ListSolvers handles GET /api/v1/solvers
func ListSolvers(c *gin.Context) {
	names := solver.Names()
	out := make([]models.SolverInfo, 0, len(names))
	for _, name := range names {
		info := models.SolverInfo{
			Name:        name,
			Description: solverDescriptions[name],
			Options:     []models.ParameterInfo{},
		}
		if name == "builtin" || name == "simplex" {
			info.Options = builtinOptions
		}
		out = append(out, info)
	}
	c.JSON(http.StatusOK, gin.H{"solvers": out})
}
