package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Resource URIs
const (
	FindingsResourceURI = "neurodx://findings"
	DiseasesResourceURI = "neurodx://diseases"
)

const jsonMIMEType = "application/json"

func (s *Server) registerResources() {
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         FindingsResourceURI,
		Name:        "findings",
		Description: "Finding catalog used by compute_diagnosis",
		MIMEType:    jsonMIMEType,
	}, s.readResource)

	s.mcpServer.AddResource(&mcp.Resource{
		URI:         DiseasesResourceURI,
		Name:        "diseases",
		Description: "Disease knowledge base with likelihood ratios",
		MIMEType:    jsonMIMEType,
	}, s.readResource)
}

func (s *Server) readResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := req.Params.URI

	body, err := s.resourceBody(uri)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", uri, err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: jsonMIMEType,
			Text:     string(data),
		}},
	}, nil
}

func (s *Server) resourceBody(uri string) (any, error) {
	switch uri {
	case FindingsResourceURI:
		findings, err := s.diagnosis.Findings("", "")
		if err != nil {
			return nil, err
		}
		return FindingsResult{Findings: findings, Count: len(findings)}, nil
	case DiseasesResourceURI:
		return s.diagnosis.Diseases(), nil
	default:
		return nil, mcp.ResourceNotFoundError(uri)
	}
}
