package ldb

import "github.com/eccnet/eccd/logger"

var log, _ = logger.Get(logger.SubsystemTags.ECDB)
