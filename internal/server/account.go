package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetAccount(c *gin.Context) {
	account := s.coord.Account()
	if !account.Present {
		c.JSON(http.StatusOK, gin.H{"present": false})
		return
	}
	c.JSON(http.StatusOK, account)
}

func (s *Server) GetBalance(c *gin.Context) {
	c.JSON(http.StatusOK, s.coord.Balance())
}

func (s *Server) GetTotals(c *gin.Context) {
	c.JSON(http.StatusOK, s.coord.Totals())
}
