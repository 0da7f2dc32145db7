package tools

import (
	"encoding/json"
	"strings"
)

func FmtJSONString(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "marshal data fail"
	}
	return string(data)
}

// RegionDir turns a region label into the folder name used under
// downloaded_tiles/ and tiles/.
func RegionDir(region string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(region)), " ", "_")
}
