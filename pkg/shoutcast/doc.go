// Package shoutcast resolves Internet-radio playlist URLs (.pls, .m3u, .m3u8)
// to the stream URL they point at. It reads at most a small prefix of the
// response, so a URL that already is an audio stream is recognized without
// being consumed.
package shoutcast
