package cache

import (
	"time"
)

// ist はインド標準時（UTC+5:30、夏時間なし）です。tzdata に依存しないよう固定オフセットを使います。
var ist = time.FixedZone("IST", 5*60*60+30*60)

// TimeUntilNext8AM は次の午前8時（インド標準時）までの期間を返します。
// マスターコントラクトはこの時刻に更新されるため、検索キャッシュの有効期限に使います。
func TimeUntilNext8AM() time.Duration {
	return timeUntilNext8AM(time.Now())
}

func timeUntilNext8AM(now time.Time) time.Duration {
	now = now.In(ist)

	// 次の午前8時を計算
	next8am := time.Date(now.Year(), now.Month(), now.Day(), 8, 0, 0, 0, ist)

	// 今日の午前8時を既に過ぎている場合は明日の午前8時を使用
	if !now.Before(next8am) {
		next8am = next8am.Add(24 * time.Hour)
	}

	return next8am.Sub(now)
}
