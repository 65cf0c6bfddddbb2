package domain

import "errors"

// Sentinel errors for the failure taxonomy. Adapters wrap them with
// fmt.Errorf("%w: ...") so callers classify with errors.Is.
var (
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrUpstreamFormat      = errors.New("upstream format error")
	ErrUnmappedChannel     = errors.New("unmapped channel")
	ErrNoDataProduced      = errors.New("no data produced")
	ErrAuthentication      = errors.New("authentication failed")
	ErrTransfer            = errors.New("transfer failed")
	ErrConnectionLost      = errors.New("connection lost")
	ErrStagingAreaConflict = errors.New("staging area conflict")
)

// Kind is the taxonomy name of a failure, used in logs, metrics and summaries.
type Kind string

const (
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindUpstreamFormat      Kind = "upstream_format"
	KindUnmappedChannel     Kind = "unmapped_channel"
	KindNoDataProduced      Kind = "no_data_produced"
	KindAuthentication      Kind = "authentication"
	KindTransfer            Kind = "transfer"
	KindConnectionLost      Kind = "connection_lost"
	KindStagingAreaConflict Kind = "staging_area_conflict"
	KindInternal            Kind = "internal"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrUpstreamUnavailable, KindUpstreamUnavailable},
	{ErrUpstreamFormat, KindUpstreamFormat},
	{ErrUnmappedChannel, KindUnmappedChannel},
	{ErrNoDataProduced, KindNoDataProduced},
	{ErrAuthentication, KindAuthentication},
	{ErrTransfer, KindTransfer},
	{ErrConnectionLost, KindConnectionLost},
	{ErrStagingAreaConflict, KindStagingAreaConflict},
}

// KindOf classifies err. Unknown errors are KindInternal.
func KindOf(err error) Kind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// Fatal reports whether a failure of this kind aborts the current phase.
func (k Kind) Fatal() bool {
	switch k {
	case KindAuthentication, KindConnectionLost, KindStagingAreaConflict:
		return true
	default:
		return false
	}
}
