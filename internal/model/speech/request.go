package speech

// AudioBlob 单次请求上传的原始音频，format 来自文件名或魔数嗅探。
type AudioBlob struct {
	Data   []byte `json:"-"`
	Format string `json:"format"` // wav, mp3, pcm ...
}

// Empty 判断是否没有任何音频字节。
func (b AudioBlob) Empty() bool {
	return len(b.Data) == 0
}
