package cmd

const licenses = `http-mount bundles the following libraries:

github.com/goccy/go-json                  MIT License
github.com/hashicorp/go-cleanhttp         Mozilla Public License 2.0
github.com/hashicorp/golang-lru           Mozilla Public License 2.0
github.com/jacobsa/fuse                   Apache License 2.0
github.com/jacobsa/syncutil               Apache License 2.0
github.com/jacobsa/timeutil               Apache License 2.0
github.com/minio/minio-go/v7              Apache License 2.0
github.com/spf13/afero                    Apache License 2.0
github.com/spf13/cobra                    Apache License 2.0
github.com/spf13/viper                    MIT License
gopkg.in/natefinch/lumberjack.v2          MIT License

The full license texts are distributed with the source code of each library.
`
