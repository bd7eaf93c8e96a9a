//go:build darwin && cgo && !tesseract

package ocr

/*
#cgo CFLAGS: -x objective-c -fobjc-arc
#cgo LDFLAGS: -framework Foundation -framework Vision -framework ImageIO -framework CoreGraphics

#import <Foundation/Foundation.h>
#import <Vision/Vision.h>
#import <ImageIO/ImageIO.h>
#include <stdlib.h>
#include <string.h>

static char *hotkeyd_vision_recognize(const void *data, int length, const char *languages, char **errOut) {
	@autoreleasepool {
		NSData *bytes = [NSData dataWithBytes:data length:(NSUInteger)length];
		CGImageSourceRef source = CGImageSourceCreateWithData((__bridge CFDataRef)bytes, NULL);
		if (source == NULL) {
			*errOut = strdup("cannot read image data");
			return NULL;
		}
		CGImageRef image = CGImageSourceCreateImageAtIndex(source, 0, NULL);
		CFRelease(source);
		if (image == NULL) {
			*errOut = strdup("cannot create CGImage");
			return NULL;
		}

		VNRecognizeTextRequest *request = [[VNRecognizeTextRequest alloc] init];
		request.recognitionLevel = VNRequestTextRecognitionLevelAccurate;
		request.usesLanguageCorrection = YES;
		NSString *langs = [NSString stringWithUTF8String:languages];
		if (langs.length > 0) {
			request.recognitionLanguages = [langs componentsSeparatedByString:@","];
		}

		VNImageRequestHandler *handler = [[VNImageRequestHandler alloc] initWithCGImage:image options:@{}];
		NSError *error = nil;
		BOOL ok = [handler performRequests:@[request] error:&error];
		CGImageRelease(image);
		if (!ok) {
			const char *msg = error.localizedDescription.UTF8String;
			*errOut = strdup(msg != NULL ? msg : "vision request failed");
			return NULL;
		}

		NSMutableArray<NSString *> *lines = [NSMutableArray array];
		for (VNRecognizedTextObservation *observation in request.results) {
			VNRecognizedText *top = [[observation topCandidates:1] firstObject];
			if (top != nil) {
				[lines addObject:top.string];
			}
		}
		return strdup([[lines componentsJoinedByString:@"\n"] UTF8String]);
	}
}
*/
import "C"

import (
	"context"
	"errors"
	"image"
	"strings"
	"unsafe"
)

const compiledBackendType = TypeNative

// visionLanguages maps Tesseract language codes to Vision BCP-47 tags.
var visionLanguages = map[string]string{
	"chi_sim": "zh-Hans",
	"chi_tra": "zh-Hant",
	"eng":     "en-US",
	"fra":     "fr-FR",
	"deu":     "de-DE",
	"jpn":     "ja-JP",
	"kor":     "ko-KR",
}

type visionEngine struct {
	languages string
}

func newCompiledEngine(languages []string) Engine {
	tags := make([]string, 0, len(languages))
	for _, lang := range languages {
		if tag, ok := visionLanguages[lang]; ok {
			tags = append(tags, tag)
		}
	}
	return &visionEngine{languages: strings.Join(tags, ",")}
}

func (e *visionEngine) Type() string { return TypeNative }

func (e *visionEngine) Recognize(ctx context.Context, img image.Image) (string, error) {
	data, err := encodePNG(img)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	buf := C.CBytes(data)
	defer C.free(buf)
	langs := C.CString(e.languages)
	defer C.free(unsafe.Pointer(langs))

	var cErr *C.char
	out := C.hotkeyd_vision_recognize(buf, C.int(len(data)), langs, &cErr)
	if out == nil {
		msg := "vision request failed"
		if cErr != nil {
			msg = C.GoString(cErr)
			C.free(unsafe.Pointer(cErr))
		}
		return "", errors.New(msg)
	}
	defer C.free(unsafe.Pointer(out))
	return C.GoString(out), nil
}

func (e *visionEngine) Close() error { return nil }
