package quickask

import (
	"encoding/base64"
	"fmt"
)

// hashPrefix marks a quick-ask payload smuggled through the URL fragment.
const hashPrefix = "#__qa="

// EncodeAskFragment packs prompt text into the fragment the init script
// listens for. The text travels base64-encoded so arbitrary characters
// survive the URL.
func EncodeAskFragment(baseURL, text string) string {
	encoded := base64.StdEncoding.EncodeToString([]byte(text))
	return fmt.Sprintf("%s%s%s", baseURL, hashPrefix, encoded)
}

// InitScript returns the page-side bootstrap installed into every embedded
// context before its first navigation. It marks the page as managed and
// implements the hash protocol used when a platform has no template: a
// fragment of the form #__qa=<base64> is decoded and injected into the
// first plausible prompt input.
func InitScript() string {
	return `(() => {
  if (window.__chatdockReady) return;
  window.__chatdockReady = true;
  window.__chatdockCancel = window.__chatdockCancel || {};

  const PREFIX = '#__qa=';

  function decodeText(fragment) {
    const b64 = decodeURIComponent(fragment.slice(PREFIX.length));
    const bytes = Uint8Array.from(atob(b64), (c) => c.charCodeAt(0));
    return new TextDecoder().decode(bytes);
  }

  function findPromptInput() {
    return document.querySelector('textarea')
      || document.querySelector('[contenteditable="true"]')
      || document.querySelector('input[type="text"]');
  }

  function inject() {
    const hash = window.location.hash || '';
    if (hash.indexOf(PREFIX) !== 0) return;
    let text;
    try {
      text = decodeText(hash);
    } catch (e) {
      return;
    }
    history.replaceState(null, '', window.location.pathname + window.location.search);
    const el = findPromptInput();
    if (!el) return;
    if (el.tagName === 'TEXTAREA' || el.tagName === 'INPUT') {
      const proto = Object.getPrototypeOf(el);
      const desc = Object.getOwnPropertyDescriptor(proto, 'value');
      if (desc && desc.set) {
        desc.set.call(el, text);
      } else {
        el.value = text;
      }
    } else {
      el.textContent = text;
    }
    el.dispatchEvent(new InputEvent('input', { bubbles: true, cancelable: true }));
    el.dispatchEvent(new Event('change', { bubbles: true }));
  }

  window.addEventListener('hashchange', inject);
  if (document.readyState === 'loading') {
    document.addEventListener('DOMContentLoaded', inject);
  } else {
    inject();
  }
})();`
}
