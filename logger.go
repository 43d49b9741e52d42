package lsyolo

import "go.uber.org/zap"

// Logger receives progress messages and the reasons annotations or files are skipped. It
// discards everything until replaced, e.g. with zap.NewDevelopment().
var Logger = zap.NewNop()
