package render

import (
	"go.uber.org/zap"

	"github.com/conciergehq/concierge/types"
)

// Service is the rendering front door: factory plus template manager.
type Service struct {
	factory   *Factory
	templates *TemplateManager
	logger    *zap.Logger
}

// NewService wires the renderer factory to the template manager.
func NewService(outputDir string, logger *zap.Logger) (*Service, error) {
	templates, err := NewTemplateManager(outputDir)
	if err != nil {
		return nil, err
	}
	return &Service{
		factory:   NewFactory(logger),
		templates: templates,
		logger:    logger.With(zap.String("component", "render")),
	}, nil
}

// Factory exposes the renderer factory, mainly for the crews endpoint.
func (s *Service) Factory() *Factory { return s.factory }

// Render produces the report for a crew output: body via the renderer
// for rendererKey, page via the shell, file under the output directory.
func (s *Service) Render(rendererKey string, out *types.CrewOutput) (*types.Report, error) {
	report := types.NewReport(out)

	body := s.factory.Render(rendererKey, out)
	bodyHTML, err := serialize(body)
	if err != nil {
		return nil, types.NewError(types.ErrRenderFailed, "serialize report body: "+err.Error()).WithCause(err)
	}

	page, err := s.templates.Page(report.Title, out.CrewKey, bodyHTML, report.GeneratedAt)
	if err != nil {
		return nil, types.NewError(types.ErrRenderFailed, err.Error()).WithCause(err)
	}
	report.HTML = page

	path, err := s.templates.Write(report)
	if err != nil {
		return nil, types.NewError(types.ErrRenderFailed, err.Error()).WithCause(err)
	}
	report.OutputPath = path

	s.logger.Info("report rendered",
		zap.String("request_id", out.RequestID),
		zap.String("crew", out.CrewKey),
		zap.String("renderer", rendererKey),
		zap.String("path", path),
	)
	return report, nil
}
