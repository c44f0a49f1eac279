package dispatch

// User-facing texts. Replies acknowledge an event; pushes carry the outcome
// of the slow pipeline.
const (
	// MsgGreeting answers non-message events such as follow or join.
	MsgGreeting = "嗨，我是影片行銷小助理，目前只支援『影片檔』或『影片網址』，可以直接傳影片給我，或貼上影片連結。"

	// MsgUnsupported answers message types other than text and video.
	MsgUnsupported = "目前只支援『影片檔』或『文字訊息內含影片網址』，請用其中一種方式傳影片給我喔。"

	// MsgUsage answers a text message without a URL.
	MsgUsage = "請上傳影片檔，或貼上影片網址（例如 YouTube 已另存為雲端 mp4）、Google Drive 直連影片等。\n\n" +
		"我會幫你做：\n1️⃣ 影片內容定位\n2️⃣ 專業優缺點評估\n3️⃣ 故事行銷＋反差開場腳本重寫。"

	MsgVideoAck = "收到你的影片，我正在幫你轉文字與分析內容，稍後會把完整建議與故事行銷腳本傳給你 😊"
	MsgURLAck   = "收到影片網址，我來幫你嘗試下載並做專業評價與故事行銷腳本重寫，請稍候幾秒…"

	// MsgURLUnavailable is pushed when a link does not resolve to a video file.
	MsgURLUnavailable = "我有收到網址，但無法直接取得影片檔。\n\n" +
		"目前僅支援『可直接下載 mp4/mov 檔案的網址』，像是：\n" +
		"- 檔案伺服器上的影片直鏈\n" +
		"- Google Drive / Dropbox 允許直接下載的分享連結\n\n" +
		"若是 YouTube、FB、IG、TikTok 等頁面網址，請先下載成 mp4 再上傳給我，我才能幫你分析與重寫腳本。"

	MsgVideoNoSpeech = "我收到影片了，但在語音轉文字時沒有抓到有效內容。\n" +
		"可能是音量太小、噪音太多或是純音樂。\n\n" +
		"你可以試著：\n• 說話靠近一點麥克風\n• 降低環境噪音\n• 再錄一段 30～90 秒的說明影片給我"
	MsgURLNoSpeech = "我成功下載影片，但在語音轉文字時沒有抓到有效內容，可能是音量太小或只有背景音樂。\n\n" +
		"建議：錄一段 30～90 秒、說話清楚、背景安靜的影片給我，我再幫你重寫行銷腳本。"

	MsgVideoFailed = "處理影片時發生錯誤，可能是檔案太大或網路不穩。\n" +
		"可以先試試 1 分鐘以內的影片，再傳一次給我 🙏"
	MsgURLFailed = "處理影片網址時發生錯誤，可能是該平台不允許直接下載影片。\n\n" +
		"建議：先把影片下載成 mp4，再直接從 LINE 上傳給我，我會一樣幫你做完整評估與腳本重寫。"
)
