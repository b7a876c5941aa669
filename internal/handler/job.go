package handler

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/makeasinger/controlpanel/internal/logger"
	"github.com/makeasinger/controlpanel/internal/model"
	"github.com/makeasinger/controlpanel/internal/service"
	"github.com/makeasinger/controlpanel/internal/store"
	"github.com/makeasinger/controlpanel/pkg/protocol"
)

// JobHandler starts jobs and reports their state.
type JobHandler struct {
	service *service.JobService
}

func NewJobHandler(svc *service.JobService) *JobHandler {
	return &JobHandler{service: svc}
}

func (h *JobHandler) Register(r *Router) {
	r.Register(protocol.TypeStartProcess, h.StartProcess)
	r.Register(protocol.TypeInstallAsset, h.InstallAsset)
	r.Register(protocol.TypeInstallPatch, h.InstallPatch)
	r.Register(protocol.TypeJobStatus, h.Status)
}

// StartProcess handles startProcess
func (h *JobHandler) StartProcess(ctx context.Context, req *Request) error {
	var p protocol.StartProcessRequest
	if err := req.Bind(&p); err != nil {
		return err
	}
	return h.start(ctx, req, model.JobKindProcess, "")
}

// InstallAsset handles installAsset
func (h *JobHandler) InstallAsset(ctx context.Context, req *Request) error {
	var p protocol.InstallAssetRequest
	if err := req.Bind(&p); err != nil {
		return err
	}
	return h.start(ctx, req, model.JobKindAsset, p.Asset)
}

// InstallPatch handles installPatch
func (h *JobHandler) InstallPatch(ctx context.Context, req *Request) error {
	var p protocol.InstallPatchRequest
	if err := req.Bind(&p); err != nil {
		return err
	}
	return h.start(ctx, req, model.JobKindPatch, p.Patch)
}

// start replies with the new job id before the driver is launched, so the
// requester sees the reply ahead of the job's first event.
func (h *JobHandler) start(ctx context.Context, req *Request, kind, target string) error {
	job, err := h.service.Create(ctx, kind, target)
	if err != nil {
		return err
	}
	if err := req.Reply(protocol.JobStarted{
		Type:     req.Envelope.Type,
		JobID:    job.ID,
		Status:   string(job.Status),
		Progress: job.Progress,
	}); err != nil {
		return err
	}
	if err := h.service.Launch(ctx, job.ID); err != nil {
		logger.Error("Failed to start job", zap.Int64("jobId", job.ID), zap.Error(err))
	}
	return nil
}

// Status handles jobStatus
func (h *JobHandler) Status(ctx context.Context, req *Request) error {
	var p protocol.JobStatusRequest
	if err := req.Bind(&p); err != nil {
		return err
	}
	job, err := h.service.Get(ctx, p.JobID)
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			return errors.New("Job not found")
		}
		return err
	}
	return req.Reply(protocol.JobStatusResponse{
		JobID:    job.ID,
		Kind:     job.Kind,
		Status:   string(job.Status),
		Progress: job.Progress,
	})
}
