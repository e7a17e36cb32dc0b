package presence

import "fmt"

// ColorFor 由参与者 id 确定性地算出颜色，两个观察者无需通信就能得到同一个值
func ColorFor(id string) string {
	var h int32
	for _, r := range id {
		h = h*31 + int32(r)
	}
	u := uint32(h)
	hue := u % 360
	sat := 60 + (u>>9)%25
	light := 45 + (u>>17)%15
	return fmt.Sprintf("hsl(%d %d%% %d%%)", hue, sat, light)
}
