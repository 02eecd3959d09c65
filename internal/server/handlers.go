package server

import (
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"

	perrors "emberdb/pkg/errors"
)

func (s *Server) handleHealthCheck() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func (s *Server) handleGet() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Param("key")
		value, ok, err := s.db.Get([]byte(key))
		if err != nil {
			writeError(c, err)
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": perrors.ErrKeyNotFound.Error()})
			return
		}

		c.JSON(http.StatusOK, GetResponse{Key: key, Value: string(value)})
	}
}

func (s *Server) handlePut() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Param("key")
		var req PutRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.Value == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing value"})
			return
		}

		seq, err := s.db.Put([]byte(key), []byte(*req.Value))
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, WriteResponse{Key: key, Seq: seq})
	}
}

func (s *Server) handleDelete() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Param("key")
		seq, err := s.db.Delete([]byte(key))
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, WriteResponse{Key: key, Seq: seq})
	}
}

func (s *Server) handleFlush() gin.HandlerFunc {
	return func(c *gin.Context) {
		meta, err := s.db.Flush()
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, FlushResponse{Flushed: meta != nil, Metadata: meta})
	}
}

func (s *Server) handleStats() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, s.db.Stats())
	}
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, perrors.ErrEmptyKey):
		status = http.StatusBadRequest
	case errors.Is(err, perrors.ErrDBClosed):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
