package server

import (
	"fmt"
	"net/http"

	"blobd/internal/api"
)

func (s *Server) handleAdminSweep(w http.ResponseWriter, r *http.Request) {
	if s.sweeper == nil {
		s.writeServiceError(w, r, internalError(fmt.Errorf("retention sweeper is not configured")))
		return
	}

	result, err := s.sweeper.SweepOnce(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := api.SweepResponse{
		Expired:         result.Expired,
		ExpiredIDs:      result.ExpiredIDs,
		Orphaned:        result.Orphaned,
		Backfilled:      result.Backfilled,
		BackfillSkipped: result.BackfillSkipped,
		Failed:          result.Failed,
	}
	if resp.ExpiredIDs == nil {
		resp.ExpiredIDs = []string{}
	}
	s.writeJSON(w, http.StatusOK, resp)
}
