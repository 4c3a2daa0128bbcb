package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jalakoo/neo4j-transfer/internal/config"
	"github.com/jalakoo/neo4j-transfer/internal/core"
	"github.com/jalakoo/neo4j-transfer/internal/core/model"
	"github.com/jalakoo/neo4j-transfer/internal/driver"
	"github.com/jalakoo/neo4j-transfer/internal/metrics"
	"github.com/jalakoo/neo4j-transfer/pkg/utils"
)

// PurgeConfirmation is the exact phrase /purge requires. The engine itself
// performs no gating, so the HTTP boundary does.
const PurgeConfirmation = "DELETE ALL"

type Server struct {
	Service  *core.Service
	Registry *prometheus.Registry
}

func NewServer(cfg *config.Config) (*Server, error) {
	logger := utils.GetLogger()

	source, err := driver.NewNeo4jDriver(driver.Credentials{
		URI:      cfg.Source.URI,
		Username: cfg.Source.Username,
		Password: cfg.Source.Password,
		Database: cfg.Source.Database,
	})
	if err != nil {
		return nil, err
	}

	target, err := driver.NewNeo4jDriver(driver.Credentials{
		URI:      cfg.Target.URI,
		Username: cfg.Target.Username,
		Password: cfg.Target.Password,
		Database: cfg.Target.Database,
	})
	if err != nil {
		return nil, err
	}

	svc := core.NewService(source, target, core.NewLedger(), logger)
	svc.ApplyTransferConfig(cfg.Transfer)

	registry := prometheus.NewRegistry()
	svc.Metrics = metrics.New(registry)

	return &Server{Service: svc, Registry: registry}, nil
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.Default()

	r.GET("/health", s.Health)
	r.GET("/source/labels", s.Labels)
	r.GET("/source/relationship-types", s.RelationshipTypes)
	r.GET("/source/counts", s.Counts)
	r.POST("/transfers", s.Transfer)
	r.GET("/transfers", s.ListTransfers)
	r.GET("/transfers/:id", s.GetTransfer)
	r.POST("/transfers/:id/revert", s.Revert)
	r.POST("/purge", s.Purge)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{})))

	return r
}

func (s *Server) Health(c *gin.Context) {
	if err := s.Service.Health(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Labels(c *gin.Context) {
	labels, err := s.Service.Reader.Labels(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"labels": labels})
}

func (s *Server) RelationshipTypes(c *gin.Context) {
	types, err := s.Service.Reader.RelationshipTypes(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"relationship_types": types})
}

// Counts reports how many source entities a selector matches, so clients
// can size a transfer before starting it.
func (s *Server) Counts(c *gin.Context) {
	spec := model.TransferSpec{
		All:               c.Query("all") == "true",
		NodeLabels:        splitParam(c.Query("labels")),
		RelationshipTypes: splitParam(c.Query("types")),
	}
	spec.Normalize()
	if err := spec.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	counts, err := s.Service.Reader.Counts(c.Request.Context(), spec)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"nodes": counts.Nodes, "relationships": counts.Rels})
}

func splitParam(v string) []string {
	if v == "" {
		return nil
	}
	return strings.Split(v, ",")
}

func (s *Server) Transfer(c *gin.Context) {
	var spec model.TransferSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	rec, err := s.Service.Transfer(c.Request.Context(), spec)
	if err != nil {
		var vErr *core.ValidationError
		var cErr *core.ConnectivityError
		switch {
		case errors.As(err, &vErr):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "record": recordOrNil(rec)})
		case errors.As(err, &cErr):
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		default:
			// Partial transfers surface the record so the operator can
			// decide to retry or revert.
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "record": recordOrNil(rec)})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"record": rec, "summary": rec.String()})
}

func recordOrNil(rec model.TransferRecord) any {
	if rec.ID == "" {
		return nil
	}
	return rec
}

func (s *Server) ListTransfers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"transfers": s.Service.Ledger.List()})
}

func (s *Server) GetTransfer(c *gin.Context) {
	rec, err := s.Service.Ledger.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transfer": rec})
}

func (s *Server) Revert(c *gin.Context) {
	result, err := s.Service.Revert(c.Request.Context(), c.Param("id"))
	if err != nil {
		// An unknown id is the caller's mistake; anything else is a
		// target-side delete failure.
		if errors.Is(err, core.ErrTransferNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{"deleted": result.Deleted}
	if result.Warning != nil {
		resp["warning"] = result.Warning.Error()
	}
	c.JSON(http.StatusOK, resp)
}

type PurgeRequest struct {
	Confirm string `json:"confirm"`
}

func (s *Server) Purge(c *gin.Context) {
	var req PurgeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Confirm != PurgeConfirmation {
		c.JSON(http.StatusBadRequest, gin.H{"error": "purge requires confirm=\"" + PurgeConfirmation + "\""})
		return
	}

	deleted, err := s.Service.Purge(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"nodes_deleted": deleted})
}
