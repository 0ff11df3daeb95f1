package commitproxy

import (
	"context"

	"github.com/pingcap-incubator/txnproxy/internal/txnpb"
)

// pushLog sends the batch's push buffer to the log system and returns
// its logged version and pop-to version (spec.md section 4.3, Phase
// 4). A nil logSystem client (used by unit tests exercising earlier
// phases in isolation) is treated as an immediate local commit.
func (p *Pipeline) pushLog(ctx context.Context, prevVersion, commitVersion uint64, messages []txnpb.TaggedMessage) (loggedVersion, popTo uint64, err error) {
	if p.logSystem == nil {
		p.recordPopVersion(commitVersion, commitVersion)
		return commitVersion, commitVersion, nil
	}
	reply, err := p.logSystem.Push(ctx, &txnpb.LogPushRequest{
		PrevVersion:              prevVersion,
		CommitVersion:            commitVersion,
		KnownCommittedVersion:    uint64(p.epoch.CommittedVersion()),
		MinKnownCommittedVersion: uint64(p.epoch.MinKnownCommittedVersion()),
		Messages:                 messages,
	})
	if err != nil {
		return 0, 0, err
	}
	p.recordPopVersion(commitVersion, reply.PopTo)
	return reply.LoggedVersion, reply.PopTo, nil
}

// reportLiveCommittedVersion reports the new committed version to the
// master before updating this proxy's local committed_version, so the
// master's view never lags any proxy's (spec.md section 4.3, Phase 5).
func (p *Pipeline) reportLiveCommittedVersion(ctx context.Context, commitVersion uint64) error {
	if p.master == nil {
		return nil
	}
	return p.master.ReportLiveCommittedVersion(ctx, &txnpb.ReportRawCommittedVersionRequest{
		Version:                  commitVersion,
		Locked:                   p.state.Locked(),
		MetadataVersion:          p.epoch.MetadataVersion(),
		MinKnownCommittedVersion: uint64(p.epoch.MinKnownCommittedVersion()),
	})
}
