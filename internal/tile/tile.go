// Package tile 基于 Web Mercator 的四叉树瓦片编码。
//
// 地址是长度为 zoom 的 base-4 数字串，第 k 位在父瓦片内选择四个子瓦片之一，
// 因此「祖先/后代」关系等价于字符串前缀关系，存储层可以用前缀匹配做区域查询。
package tile

import (
	"math"
	"sort"
	"strings"

	"github.com/d60-Lab/geofeed/pkg/errs"
)

// MaxZoom 地址位数上限，超过无实际精度意义
const MaxZoom = 30

// mercator 投影的纬度极限，超出部分贴边处理
const maxMercatorLat = 85.05112878

// Address 瓦片地址，每个字符取 '0'..'3'
type Address string

// Bounds 瓦片/查询框的经纬度范围（度）
type Bounds struct {
	South float64
	West  float64
	North float64
	East  float64
}

func validate(lat, lon float64, zoom int) error {
	if lat < -90 || lat > 90 {
		return errs.InvalidArgumentf("latitude %v out of [-90,90]", lat)
	}
	if lon < -180 || lon > 180 {
		return errs.InvalidArgumentf("longitude %v out of [-180,180]", lon)
	}
	if zoom < 0 || zoom > MaxZoom {
		return errs.InvalidArgumentf("zoom %d out of [0,%d]", zoom, MaxZoom)
	}
	return nil
}

// FromLatLon 经纬度转地址，同一输入恒定返回同一结果
func FromLatLon(lat, lon float64, zoom int) (Address, error) {
	if err := validate(lat, lon, zoom); err != nil {
		return "", err
	}
	x, y := latLonToXY(lat, lon, zoom)
	a, _ := FromXYZ(x, y, zoom)
	return a, nil
}

func latLonToXY(lat, lon float64, zoom int) (int, int) {
	if lat > maxMercatorLat {
		lat = maxMercatorLat
	}
	if lat < -maxMercatorLat {
		lat = -maxMercatorLat
	}
	n := float64(int64(1) << uint(zoom))
	x := int(math.Floor((lon + 180) / 360 * n))
	latRad := lat * math.Pi / 180
	y := int(math.Floor((1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2 * n))
	// 东/南边界贴边
	max := int(n) - 1
	if x > max {
		x = max
	}
	if x < 0 {
		x = 0
	}
	if y > max {
		y = max
	}
	if y < 0 {
		y = 0
	}
	return x, y
}

// FromXYZ 瓦片坐标转地址；位交织：每位 digit = (yBit<<1)|xBit
func FromXYZ(x, y, zoom int) (Address, error) {
	if zoom < 0 || zoom > MaxZoom {
		return "", errs.InvalidArgumentf("zoom %d out of [0,%d]", zoom, MaxZoom)
	}
	max := (1 << uint(zoom)) - 1
	if x < 0 || x > max || y < 0 || y > max {
		return "", errs.InvalidArgumentf("tile (%d,%d) out of range at zoom %d", x, y, zoom)
	}
	var b strings.Builder
	b.Grow(zoom)
	for i := zoom - 1; i >= 0; i-- {
		d := byte('0')
		if x&(1<<uint(i)) != 0 {
			d++
		}
		if y&(1<<uint(i)) != 0 {
			d += 2
		}
		b.WriteByte(d)
	}
	return Address(b.String()), nil
}

// Zoom 地址对应的层级
func (a Address) Zoom() int { return len(a) }

// Valid 校验地址只含 '0'..'3'
func (a Address) Valid() bool {
	if len(a) > MaxZoom {
		return false
	}
	for i := 0; i < len(a); i++ {
		if a[i] < '0' || a[i] > '3' {
			return false
		}
	}
	return true
}

// XYZ 地址转瓦片坐标，与 FromXYZ 精确互逆
func (a Address) XYZ() (x, y, zoom int) {
	zoom = len(a)
	for i := 0; i < zoom; i++ {
		d := int(a[i] - '0')
		x = x<<1 | d&1
		y = y<<1 | d>>1
	}
	return
}

// Parent 上一层瓦片；zoom 0 返回自身
func (a Address) Parent() Address {
	if len(a) == 0 {
		return a
	}
	return a[:len(a)-1]
}

// IsAncestorOf 前缀即祖先
func (a Address) IsAncestorOf(d Address) bool {
	return len(a) < len(d) && strings.HasPrefix(string(d), string(a))
}

func tileLat(y int, n float64) float64 {
	return math.Atan(math.Sinh(math.Pi*(1-2*float64(y)/n))) * 180 / math.Pi
}

// Bounds 瓦片经纬度范围
func (a Address) Bounds() Bounds {
	x, y, zoom := a.XYZ()
	n := float64(int64(1) << uint(zoom))
	return Bounds{
		West:  float64(x)/n*360 - 180,
		East:  float64(x+1)/n*360 - 180,
		North: tileLat(y, n),
		South: tileLat(y+1, n),
	}
}

// Center 瓦片中心点，落在自身 Bounds 内
func (a Address) Center() (lat, lon float64) {
	b := a.Bounds()
	return (b.South + b.North) / 2, (b.West + b.East) / 2
}

// ContainsLatLon 与 Bounds 一致的包含判定：按同层重新编码后比较，
// 保证与前缀不变量（后代必在祖先范围内）完全一致
func (a Address) ContainsLatLon(lat, lon float64) bool {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return false
	}
	x, y := latLonToXY(lat, lon, len(a))
	ax, ay, _ := a.XYZ()
	return x == ax && y == ay
}

// Neighbors 同层 radius 步内的全部瓦片（含自身），世界边缘截断、不绕回
func Neighbors(a Address, radius int) ([]Address, error) {
	if radius < 0 {
		return nil, errs.InvalidArgumentf("radius %d < 0", radius)
	}
	x, y, zoom := a.XYZ()
	max := (1 << uint(zoom)) - 1
	out := make([]Address, 0, (2*radius+1)*(2*radius+1))
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			nx, ny := x+dx, y+dy
			if nx < 0 || nx > max || ny < 0 || ny > max {
				continue
			}
			n, _ := FromXYZ(nx, ny, zoom)
			out = append(out, n)
		}
	}
	return out, nil
}

// CoveringTiles 枚举与查询框相交的全部瓦片。
// 每轴超过 maxSpan 时以中心为基准收缩（不是静默截断），并通过 clamped 告知调用方。
func CoveringTiles(b Bounds, zoom, maxSpan int) (tiles []Address, clamped bool, err error) {
	if err := validate(b.South, b.West, zoom); err != nil {
		return nil, false, err
	}
	if err := validate(b.North, b.East, zoom); err != nil {
		return nil, false, err
	}
	if b.South > b.North || b.West > b.East {
		return nil, false, errs.InvalidArgumentf("inverted bounds")
	}
	if maxSpan < 1 {
		return nil, false, errs.InvalidArgumentf("maxSpan %d < 1", maxSpan)
	}
	x0, y0 := latLonToXY(b.North, b.West, zoom) // 北西角 = 最小 x,y
	x1, y1 := latLonToXY(b.South, b.East, zoom)

	x0, x1, cx := clampSpan(x0, x1, maxSpan)
	y0, y1, cy := clampSpan(y0, y1, maxSpan)
	clamped = cx || cy

	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			a, _ := FromXYZ(x, y, zoom)
			tiles = append(tiles, a)
		}
	}
	return tiles, clamped, nil
}

func clampSpan(lo, hi, maxSpan int) (int, int, bool) {
	if hi-lo+1 <= maxSpan {
		return lo, hi, false
	}
	center := (lo + hi) / 2
	lo = center - (maxSpan-1)/2
	hi = lo + maxSpan - 1
	return lo, hi, true
}

// Predicate 前缀可匹配的区域谓词：前缀集合的或
type Predicate struct {
	prefixes []string
}

// CompactPredicate 构造与输入地址集合精确等价的前缀谓词。
// 同一父瓦片的 4 个兄弟齐全时递归折叠为父前缀，缩小谓词体积；
// 保证对同层地址无假阳/假阴，不追求最小化。
func CompactPredicate(addrs []Address) Predicate {
	set := make(map[string]struct{}, len(addrs))
	for _, a := range addrs {
		set[string(a)] = struct{}{}
	}
	for {
		collapsed := false
		for s := range set {
			if len(s) == 0 {
				continue
			}
			parent := s[:len(s)-1]
			full := true
			for d := byte('0'); d <= '3'; d++ {
				if _, ok := set[parent+string(d)]; !ok {
					full = false
					break
				}
			}
			if full {
				for d := byte('0'); d <= '3'; d++ {
					delete(set, parent+string(d))
				}
				set[parent] = struct{}{}
				collapsed = true
				break
			}
		}
		if !collapsed {
			break
		}
	}
	prefixes := make([]string, 0, len(set))
	for s := range set {
		prefixes = append(prefixes, s)
	}
	sort.Strings(prefixes)
	return Predicate{prefixes: prefixes}
}

// Matches 判定同层地址是否命中谓词
func (p Predicate) Matches(a Address) bool {
	for _, pre := range p.prefixes {
		if strings.HasPrefix(string(a), pre) {
			return true
		}
	}
	return false
}

// Prefixes 暴露前缀列表，存储层拼 LIKE 'p%' 的或条件
func (p Predicate) Prefixes() []string {
	out := make([]string, len(p.prefixes))
	copy(out, p.prefixes)
	return out
}

// Empty 谓词是否为空（空谓词不命中任何地址）
func (p Predicate) Empty() bool { return len(p.prefixes) == 0 }
