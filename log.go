package main

import (
	"github.com/eccnet/eccd/logger"
)

var log, _ = logger.Get(logger.SubsystemTags.ECCD)
