package tools

import (
	"fmt"
	"time"

	"github.com/golang/glog"
)

var isEnabled = true
var printTimestamp = true

func EnableLogger() {
	isEnabled = true
}

func DisableLogger() {
	isEnabled = false
}

func EnableLoggerTimestamp() {
	printTimestamp = true
}

func DisableLoggerTimestamp() {
	printTimestamp = false
}

// LogOutput narrates user visible progress. Disabled by -silent.
func LogOutput(val ...interface{}) {
	if isEnabled {
		if printTimestamp {
			glog.InfoDepth(1, "["+time.Now().Format("2006-01-02 15.04:05.000")+"] "+fmt.Sprintln(val...))
		} else {
			glog.InfoDepth(1, fmt.Sprintln(val...))
		}
	}
}
