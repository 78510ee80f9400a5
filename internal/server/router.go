package server

import "go.uber.org/zap"

// Router decides who receives a line and writes it to them. Delivery is best
// effort: a missing recipient or a failed write is logged and dropped.
type Router struct {
	registry *Registry
	pairing  Pairing
	log      *zap.SugaredLogger
}

// NewRouter creates a router over registry using p to find partners.
func NewRouter(registry *Registry, p Pairing, log *zap.SugaredLogger) *Router {
	if p == nil {
		p = TwoParty{}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Router{registry: registry, pairing: p, log: log}
}

// PartnerOf returns the identity lines from id are relayed to.
func (r *Router) PartnerOf(id Identity) (Identity, bool) {
	return r.pairing.PartnerOf(id)
}

// Relay writes line to the partner of from. It reports whether the line was
// written; the sender is never told.
func (r *Router) Relay(from Identity, line string) bool {
	partnerID, ok := r.pairing.PartnerOf(from)
	if !ok {
		return false
	}

	partner, ok := r.registry.Lookup(partnerID)
	if !ok {
		r.log.Debugw("Partner not connected, dropping line", "from", from, "partner", partnerID)
		return false
	}

	r.log.Debugw("Forwarding to partner", "from", from, "partner", partnerID, "line", line)
	if err := partner.Send(line); err != nil {
		r.logSendError(partner, err)
		return false
	}
	return true
}

// Broadcast writes line to every registered session and returns how many
// writes succeeded.
func (r *Router) Broadcast(line string) int {
	sessions := r.registry.Snapshot()
	r.log.Debugw("Broadcasting", "targets", len(sessions), "line", line)

	delivered := 0
	for _, s := range sessions {
		if err := s.Send(line); err != nil {
			r.logSendError(s, err)
			continue
		}
		delivered++
	}
	return delivered
}

func (r *Router) logSendError(s *Session, err error) {
	if isExpectedCloseError(err) {
		r.log.Debugw("Write to closing session dropped", "identity", s.Identity(), "error", err)
		return
	}
	r.log.Warnw("Write failed", "identity", s.Identity(), "remote", s.RemoteAddr(), "error", err)
}
