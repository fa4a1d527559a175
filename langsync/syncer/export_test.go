package syncer

// CommitMessage exposes commitMessage.
const CommitMessage = commitMessage

// PickReviewersForTest exposes pickReviewers.
var PickReviewersForTest = pickReviewers
