package git

// ClassifyPullForTest exposes classifyPull.
var ClassifyPullForTest = classifyPull

// SplitPathsForTest exposes splitPaths.
var SplitPathsForTest = splitPaths
