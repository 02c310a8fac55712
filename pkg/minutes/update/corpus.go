package update

import "github.com/romuloxaguiar/teste-yfbai3/pkg/ids"

// DefaultCorpus is the probe set candidates are compared on when no
// validation corpus is configured.
var DefaultCorpus = []string{
	"Speaker 1: Good morning everyone. The budget for the next quarter is tight and hiring is paused. " +
		"Speaker 2: John will prepare the project report by next Friday. " +
		"Speaker 1: The budget review happens on Thursday and the forecast depends on the migration.",
	"Alice Smith: The migration schedule slipped by a week because the database upgrade failed. " +
		"Bob Jones: Action item: Mike to update documentation by EOD. " +
		"Alice Smith: Sarah will send the rollback plan tomorrow. The migration team agreed on a new schedule.",
	"Speaker 1: Customer feedback on the release was positive. Support tickets dropped after the release. " +
		"Speaker 2: David needs to review the support dashboard in 3 days. " +
		"Speaker 1: The release notes and the feedback survey go out next week.",
}

func newOutcomeID() string {
	return ids.New(ids.KindModelUpdate)
}
